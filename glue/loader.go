package glue

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/descriptor"
	"github.com/wasmbind/wasmbind/profile"
)

// writeLoaderPrelude emits top-level import statements a profile's loader
// depends on. Classic scripts have no prelude.
func writeLoaderPrelude(b *strings.Builder, p profile.Profile, moduleName string) {
	switch p.Loader {
	case profile.LoaderBundlerImport:
		fmt.Fprintf(b, "import _wasmURL from \"./%s\";\n\n", WasmArtifactName(moduleName))
	case profile.LoaderFileRead:
		b.WriteString("import { readFile } from \"node:fs/promises\";\n\n")
	}
}

// writeInit emits the init state machine and the profile's instantiation
// path. Instantiation is the only suspension point: once the promise
// settles the surface is either permanently ready or permanently failed.
func writeInit(b *strings.Builder, p profile.Profile, moduleName string) {
	b.WriteString("async function _instantiate(input) {\n")
	writeLoaderBody(b, p, moduleName)
	b.WriteString(`}

function init(input) {
  if (_state === "ready") {
    return Promise.resolve(_api);
  }
  if (_state === "instantiating") {
    return _inflight;
  }
  if (_state === "failed") {
    return Promise.reject(_failure);
  }
  _state = "instantiating";
  _inflight = _instantiate(input).then(
    function () {
      _state = "ready";
      _inflight = null;
      return _api;
    },
    function (err) {
      _failure = err instanceof InstantiationError ? err : new InstantiationError(err);
      _state = "failed";
      _inflight = null;
      throw _failure;
    }
  );
  return _inflight;
}

`)
}

func writeLoaderBody(b *strings.Builder, p profile.Profile, moduleName string) {
	switch p.Loader {
	case profile.LoaderFetchURL:
		fmt.Fprintf(b, `  const source = input !== undefined ? input : new URL("%s", import.meta.url);
  let result;
  if (source instanceof WebAssembly.Module) {
    result = { instance: await WebAssembly.instantiate(source, _imports) };
  } else if (source instanceof ArrayBuffer || ArrayBuffer.isView(source)) {
    result = await WebAssembly.instantiate(source, _imports);
  } else {
    const response = await fetch(source);
    if (typeof WebAssembly.instantiateStreaming === "function") {
      result = await WebAssembly.instantiateStreaming(response, _imports);
    } else {
      result = await WebAssembly.instantiate(await response.arrayBuffer(), _imports);
    }
  }
  _wasm = result.instance;
`, WasmArtifactName(moduleName))

	case profile.LoaderBundlerImport:
		b.WriteString(`  const source = input !== undefined ? input : _wasmURL;
  let result;
  if (source instanceof WebAssembly.Module) {
    result = { instance: await WebAssembly.instantiate(source, _imports) };
  } else if (source instanceof ArrayBuffer || ArrayBuffer.isView(source)) {
    result = await WebAssembly.instantiate(source, _imports);
  } else {
    const response = await fetch(source);
    if (typeof WebAssembly.instantiateStreaming === "function") {
      result = await WebAssembly.instantiateStreaming(response, _imports);
    } else {
      result = await WebAssembly.instantiate(await response.arrayBuffer(), _imports);
    }
  }
  _wasm = result.instance;
`)

	case profile.LoaderFileRead:
		fmt.Fprintf(b, `  const source = input !== undefined ? input : new URL("%s", import.meta.url);
  let bytes;
  if (source instanceof ArrayBuffer || ArrayBuffer.isView(source)) {
    bytes = source;
  } else if (source instanceof WebAssembly.Module) {
    _wasm = await WebAssembly.instantiate(source, _imports);
    return;
  } else {
    bytes = await readFile(source);
  }
  const result = await WebAssembly.instantiate(bytes, _imports);
  _wasm = result.instance;
`, WasmArtifactName(moduleName))

	case profile.LoaderScriptFetch:
		b.WriteString(`  if (input === undefined) {
    throw new InstantiationError("init(source) needs a module URL or its bytes");
  }
  let result;
  if (input instanceof WebAssembly.Module) {
    result = { instance: await WebAssembly.instantiate(input, _imports) };
  } else if (input instanceof ArrayBuffer || ArrayBuffer.isView(input)) {
    result = await WebAssembly.instantiate(input, _imports);
  } else if (typeof fetch === "function") {
    const response = await fetch(input);
    result = await WebAssembly.instantiate(await response.arrayBuffer(), _imports);
  } else {
    throw new InstantiationError("no fetch in this host; pass module bytes to init()");
  }
  _wasm = result.instance;
`)
	}
}

// writeFooter closes the module: the ready surface handed to init
// callers, then either ES exports or the script global.
func writeFooter(b *strings.Builder, p profile.Profile, moduleName string,
	funcs []*descriptor.Export, structs []*descriptor.Struct) {

	names := make([]string, 0, 1+len(funcs)+len(structs)+len(errorClassNames))
	names = append(names, "init")
	for _, e := range funcs {
		names = append(names, funcName(e.Name))
	}
	for _, st := range structs {
		names = append(names, className(st.Name))
	}
	names = append(names, errorClassNames...)

	b.WriteString("const _api = {\n")
	for _, n := range names {
		fmt.Fprintf(b, "  %s: %s,\n", n, n)
	}
	b.WriteString("};\n\n")

	if p.ESM {
		fmt.Fprintf(b, "export default init;\nexport { %s };\n", strings.Join(names, ", "))
		return
	}
	fmt.Fprintf(b, "globalThis.%s = _api;\n})();\n", globalName(moduleName))
}
