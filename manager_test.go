package store

import (
	"sync"
	"testing"
)

func TestFindCodecDerivesStructCodecs(t *testing.T) {
	dm := newTestManager(t)
	c1, err := dm.FindCodec(typeOf[Circle]())
	noerr(t, err)
	c2, err := dm.FindCodec(typeOf[*Circle]())
	noerr(t, err)
	if c1 != c2 {
		t.Errorf("** codec lookup is not cached across pointerness")
	}
	deepEqual(t, c1.ValueType(), typeOf[Circle]())
}

func TestFindCodecMissing(t *testing.T) {
	dm := newTestManager(t)
	_, err := dm.FindCodec(typeOf[int]())
	iserr(t, err, ErrCodecMissing)
	_, err = dm.FindCodec(typeOf[Shape]())
	iserr(t, err, ErrCodecMissing)
	_, err = dm.FindCodec(nil)
	iserr(t, err, ErrCodecMissing)
}

func TestTypeByName(t *testing.T) {
	dm := newTestManager(t)
	typ, ok := dm.TypeByName("circle")
	deepEqual(t, ok, true)
	deepEqual(t, typ, typeOf[Circle]())
	_, ok = dm.TypeByName("hexagon")
	deepEqual(t, ok, false)
}

func TestRegisterEnumTwicePanics(t *testing.T) {
	dm := newTestManager(t)
	defer func() {
		if recover() == nil {
			t.Errorf("** expected panic for duplicate enum registration")
		}
	}()
	RegisterEnum(dm, "Rank2", rankConstants)
}

func TestManagerWorkerPool(t *testing.T) {
	dm := NewDataManager(Options{Workers: 2})

	var mu sync.Mutex
	var ran int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		dm.Go(func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	wg.Wait()
	dm.Close()
	deepEqual(t, ran, 20)

	defer func() {
		if recover() == nil {
			t.Errorf("** expected panic when submitting to a closed manager")
		}
	}()
	dm.Go(func() {})
}
