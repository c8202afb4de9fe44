package handle_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/handle"
)

func TestRegisterAndGet(t *testing.T) {
	tbl := handle.NewTable()

	h1 := tbl.Register(1, 100)
	h2 := tbl.Register(2, 200)
	if h1 != 1 || h2 != 2 {
		t.Fatalf("handles = %d, %d, want 1, 2", h1, h2)
	}

	e, err := tbl.Get(h1)
	if err != nil {
		t.Fatalf("Get(%d) failed: %v", h1, err)
	}
	if e.StructID != 1 || e.Rep != 100 {
		t.Errorf("entry = %+v, want {StructID:1 Rep:100}", e)
	}
	if got := tbl.Live(); got != 2 {
		t.Errorf("Live() = %d, want 2", got)
	}
}

func TestHandleZeroInvalid(t *testing.T) {
	tbl := handle.NewTable()
	tbl.Register(1, 100)

	if _, err := tbl.Get(0); !errors.Is(err, errors.UseAfterFree(0)) {
		t.Errorf("Get(0) = %v, want use_after_free", err)
	}
	if _, err := tbl.Borrow(0); !errors.Is(err, errors.UseAfterFree(0)) {
		t.Errorf("Borrow(0) = %v, want use_after_free", err)
	}
	if err := tbl.Free(0); !errors.Is(err, errors.UseAfterFree(0)) {
		t.Errorf("Free(0) = %v, want use_after_free", err)
	}
}

func TestGetUnknownHandle(t *testing.T) {
	tbl := handle.NewTable()
	if _, err := tbl.Get(7); !errors.Is(err, errors.UseAfterFree(0)) {
		t.Errorf("Get(7) = %v, want use_after_free", err)
	}
}

func TestFreePoisonsEntry(t *testing.T) {
	tbl := handle.NewTable()
	h := tbl.Register(1, 100)

	if err := tbl.Free(h); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	// Every subsequent operation must keep failing the same way.
	for i := 0; i < 3; i++ {
		if _, err := tbl.Get(h); !errors.Is(err, errors.UseAfterFree(0)) {
			t.Errorf("Get after free #%d = %v, want use_after_free", i, err)
		}
		if err := tbl.Free(h); !errors.Is(err, errors.UseAfterFree(0)) {
			t.Errorf("Free after free #%d = %v, want use_after_free", i, err)
		}
		if _, err := tbl.Borrow(h); !errors.Is(err, errors.UseAfterFree(0)) {
			t.Errorf("Borrow after free #%d = %v, want use_after_free", i, err)
		}
	}
	if got := tbl.Live(); got != 0 {
		t.Errorf("Live() = %d, want 0", got)
	}
}

func TestFreeRefusesWhileBorrowed(t *testing.T) {
	tbl := handle.NewTable()
	h := tbl.Register(1, 100)

	if _, err := tbl.Borrow(h); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}

	err := tbl.Free(h)
	if err == nil {
		t.Fatal("Free succeeded with an outstanding borrow")
	}
	if !strings.Contains(err.Error(), "outstanding borrows") {
		t.Errorf("error = %q, want borrow complaint", err)
	}

	if err := tbl.Release(h); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := tbl.Free(h); err != nil {
		t.Fatalf("Free after release failed: %v", err)
	}
}

func TestReleaseWithoutBorrow(t *testing.T) {
	tbl := handle.NewTable()
	h := tbl.Register(1, 100)

	err := tbl.Release(h)
	if err == nil {
		t.Fatal("Release succeeded without a borrow")
	}
	if !strings.Contains(err.Error(), "no outstanding borrows") {
		t.Errorf("error = %q, want no-borrows complaint", err)
	}
}

func TestIDRecycledAfterFree(t *testing.T) {
	tbl := handle.NewTable()
	a := tbl.Register(1, 100)
	b := tbl.Register(1, 200)

	if err := tbl.Free(a); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	c := tbl.Register(2, 300)
	if c != a {
		t.Errorf("recycled handle = %d, want %d", c, a)
	}
	e, err := tbl.Get(c)
	if err != nil {
		t.Fatalf("Get(%d) failed: %v", c, err)
	}
	if e.StructID != 2 || e.Rep != 300 {
		t.Errorf("recycled entry = %+v, want fresh registration", e)
	}

	if _, err := tbl.Get(b); err != nil {
		t.Errorf("unrelated handle broken after recycle: %v", err)
	}
}

func TestIDNotRecycledWhileLive(t *testing.T) {
	tbl := handle.NewTable()
	a := tbl.Register(1, 100)

	if _, err := tbl.Borrow(a); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if err := tbl.Free(a); err == nil {
		t.Fatal("Free succeeded while borrowed")
	}

	b := tbl.Register(1, 200)
	if b == a {
		t.Fatalf("live handle %d was reissued", a)
	}
}

func TestEach(t *testing.T) {
	tbl := handle.NewTable()
	tbl.Register(1, 100)
	h2 := tbl.Register(2, 200)
	tbl.Register(3, 300)
	if err := tbl.Free(h2); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	var seen []uint32
	tbl.Each(func(h handle.Handle, e handle.Entry) bool {
		seen = append(seen, e.StructID)
		return true
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Errorf("Each visited %v, want [1 3]", seen)
	}

	count := 0
	tbl.Each(func(handle.Handle, handle.Entry) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("Each after early stop visited %d entries, want 1", count)
	}
}

func TestConcurrentBorrowRelease(t *testing.T) {
	tbl := handle.NewTable()
	shared := tbl.Register(1, 100)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, err := tbl.Borrow(shared); err != nil {
					t.Errorf("Borrow failed: %v", err)
					return
				}
				if err := tbl.Release(shared); err != nil {
					t.Errorf("Release failed: %v", err)
					return
				}
			}
		}()
	}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h := tbl.Register(2, uint32(i))
				if err := tbl.Free(h); err != nil {
					t.Errorf("Free failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	// All borrows returned: the shared handle is freeable and nothing
	// else is live.
	if err := tbl.Free(shared); err != nil {
		t.Fatalf("Free after concurrent borrows failed: %v", err)
	}
	if got := tbl.Live(); got != 0 {
		t.Errorf("Live() = %d, want 0", got)
	}
}
