package sectorstore_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/vela-systems/sectorstore/pkg/sectorstore"
)

const (
	fieldPos sectorstore.ComponentType = iota
	fieldVel
)

func u64Desc() sectorstore.ComponentDesc {
	return sectorstore.ComponentDesc{
		Size:                 8,
		Align:                8,
		TriviallyRelocatable: true,
		Move: func(dst, src unsafe.Pointer) {
			*(*uint64)(dst) = *(*uint64)(src)
		},
		Copy: func(dst, src unsafe.Pointer) {
			*(*uint64)(dst) = *(*uint64)(src)
		},
		Drop: func(unsafe.Pointer) {},
	}
}

func newTwoFieldStore(t *testing.T) *sectorstore.SectorStore {
	t.Helper()

	s, err := sectorstore.New(sectorstore.LayoutSpec{
		Components: []sectorstore.ComponentDesc{u64Desc(), u64Desc()},
	}, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return s
}

func setField(t *testing.T, s *sectorstore.SectorStore, id sectorstore.EntityID, field sectorstore.ComponentType, val uint64) {
	t.Helper()

	ptr, err := s.Acquire(id, field)
	if err != nil {
		t.Fatalf("Acquire(%d, %d): %v", id, field, err)
	}

	*(*uint64)(ptr) = val
}

func getField(t *testing.T, s *sectorstore.SectorStore, id sectorstore.EntityID, field sectorstore.ComponentType) uint64 {
	t.Helper()

	ref, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}

	ptr, err := ref.Field(field)
	if err != nil {
		t.Fatalf("Field(%d, %d): %v", id, field, err)
	}

	return *(*uint64)(ptr)
}

func Test_Acquire_Inserts_New_Sectors_In_Sorted_Order(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 5, fieldPos, 50)
	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 3, fieldPos, 30)

	if got := s.Size(); got != 3 {
		t.Fatalf("Size = %d, want 3", got)
	}

	var ids []sectorstore.EntityID
	for ref := range s.Iter() {
		ids = append(ids, ref.ID())
	}

	want := []sectorstore.EntityID{1, 3, 5}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}

	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func Test_Acquire_Reconstructs_Existing_Sector_In_Place(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 1, fieldVel, 99)

	if got := s.Size(); got != 1 {
		t.Fatalf("Size = %d, want 1 (same sector reused)", got)
	}

	if got := getField(t, s, 1, fieldPos); got != 10 {
		t.Fatalf("fieldPos = %d, want 10", got)
	}

	if got := getField(t, s, 1, fieldVel); got != 99 {
		t.Fatalf("fieldVel = %d, want 99", got)
	}
}

func Test_Acquire_Rejects_InvalidID(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	if _, err := s.Acquire(sectorstore.InvalidID, fieldPos); !errors.Is(err, sectorstore.ErrInvalidID) {
		t.Fatalf("got %v, want ErrInvalidID", err)
	}
}

func Test_Find_Get_Contains_Reflect_Presence(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	if s.Contains(1) {
		t.Fatalf("expected id 1 absent before Acquire")
	}

	if _, ok := s.Find(1); ok {
		t.Fatalf("expected Find to fail for absent id")
	}

	if _, err := s.Get(1); !errors.Is(err, sectorstore.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	setField(t, s, 1, fieldPos, 10)

	if !s.Contains(1) {
		t.Fatalf("expected id 1 present after Acquire")
	}

	ref, ok := s.Find(1)
	if !ok || !ref.Valid() {
		t.Fatalf("expected Find to succeed for present id")
	}
}

func Test_DestroyMember_Clears_Only_That_Field(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 1, fieldVel, 20)

	if err := s.DestroyMember(1, fieldPos); err != nil {
		t.Fatalf("DestroyMember: %v", err)
	}

	ref, err := s.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if ref.IsAlive(fieldPos) {
		t.Fatalf("expected fieldPos dead")
	}

	if !ref.IsAlive(fieldVel) {
		t.Fatalf("expected fieldVel still alive")
	}

	// The sector itself still exists (counts toward Size), just logically
	// emptier.
	if got := s.Size(); got != 1 {
		t.Fatalf("Size = %d, want 1", got)
	}
}

func Test_DestroyMembers_Applies_To_Every_Present_ID(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 2, fieldPos, 20)
	setField(t, s, 3, fieldPos, 30)

	if err := s.DestroyMembers([]sectorstore.EntityID{3, 1, 99}, fieldPos); err != nil {
		t.Fatalf("DestroyMembers: %v", err)
	}

	ref1, _ := s.Get(1)
	if ref1.IsAlive(fieldPos) {
		t.Fatalf("expected id 1 fieldPos dead")
	}

	ref2, _ := s.Get(2)
	if !ref2.IsAlive(fieldPos) {
		t.Fatalf("expected id 2 fieldPos still alive (not in the destroy list)")
	}

	ref3, _ := s.Get(3)
	if ref3.IsAlive(fieldPos) {
		t.Fatalf("expected id 3 fieldPos dead")
	}
}

func Test_DestroySector_Clears_Every_Field_But_Keeps_The_Slot(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 1, fieldVel, 20)

	if err := s.DestroySector(1); err != nil {
		t.Fatalf("DestroySector: %v", err)
	}

	if got := s.Size(); got != 1 {
		t.Fatalf("Size = %d, want 1 (slot retained for reuse)", got)
	}

	if got, want := s.DeadRatio(), 1.0; got != want {
		t.Fatalf("DeadRatio = %f, want %f", got, want)
	}
}

func Test_EraseAsync_Removes_Unpinned_Sector_Immediately(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)

	if err := s.EraseAsync(1); err != nil {
		t.Fatalf("EraseAsync: %v", err)
	}

	if s.Contains(1) {
		t.Fatalf("expected id 1 gone immediately")
	}

	if got := s.PendingErases(); got != 0 {
		t.Fatalf("PendingErases = %d, want 0", got)
	}
}

func Test_EraseAsync_Defers_Pinned_Sector_Until_Released(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)

	pin, err := s.Pin(1)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}

	if err := s.EraseAsync(1); err != nil {
		t.Fatalf("EraseAsync: %v", err)
	}

	if !s.Contains(1) {
		t.Fatalf("expected pinned sector still present immediately after EraseAsync")
	}

	if got := s.PendingErases(); got != 1 {
		t.Fatalf("PendingErases = %d, want 1", got)
	}

	s.ProcessPending()

	if !s.Contains(1) {
		t.Fatalf("expected sector still present: pin still held")
	}

	pin.Release()
	s.ProcessPending()

	if s.Contains(1) {
		t.Fatalf("expected sector gone after pin release and ProcessPending")
	}

	if got := s.PendingErases(); got != 0 {
		t.Fatalf("PendingErases = %d, want 0", got)
	}
}

func Test_Acquire_Cancels_A_Deferred_Erase_When_Reviving_The_Same_Id(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)

	pin, err := s.Pin(1)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}

	if err := s.EraseAsync(1); err != nil {
		t.Fatalf("EraseAsync: %v", err)
	}

	if got := s.PendingErases(); got != 1 {
		t.Fatalf("PendingErases = %d, want 1", got)
	}

	pin.Release()

	// Id 1 is revived before ProcessPending ever runs: Acquire must cancel
	// the stale deferred erase, or the next ProcessPending would erase a
	// sector that is live again.
	setField(t, s, 1, fieldVel, 99)

	if got := s.PendingErases(); got != 0 {
		t.Fatalf("PendingErases = %d, want 0 after Acquire revives id 1", got)
	}

	s.ProcessPending()

	if !s.Contains(1) {
		t.Fatalf("expected id 1 to survive ProcessPending after being revived")
	}

	if got := getField(t, s, 1, fieldPos); got != 10 {
		t.Fatalf("id 1 fieldPos = %d, want 10", got)
	}

	if got := getField(t, s, 1, fieldVel); got != 99 {
		t.Fatalf("id 1 fieldVel = %d, want 99", got)
	}
}

func Test_EraseAsync_Returns_NotFound_For_Absent_ID(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	if err := s.EraseAsync(42); !errors.Is(err, sectorstore.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func Test_Acquire_Blocks_Insertion_On_Pinned_Tail_Until_Released(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 5, fieldPos, 50)

	pin, err := s.Pin(5)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}

	done := make(chan struct{})

	go func() {
		// Inserting id 3 requires shifting id 5's sector right, which is
		// blocked while id 5 is pinned.
		setField(t, s, 3, fieldPos, 30)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Acquire(3) returned before the blocking pin was released")
	default:
	}

	pin.Release()

	<-done

	if got := s.Size(); got != 2 {
		t.Fatalf("Size = %d, want 2", got)
	}
}

func Test_Defragment_Packs_Out_Dead_Sectors(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 2, fieldPos, 20)
	setField(t, s, 3, fieldPos, 30)

	if err := s.DestroySector(2); err != nil {
		t.Fatalf("DestroySector: %v", err)
	}

	if !s.Defragment() {
		t.Fatalf("Defragment should succeed with nothing pinned")
	}

	if got := s.Size(); got != 2 {
		t.Fatalf("Size = %d, want 2 after packing out the dead sector", got)
	}

	if got := getField(t, s, 1, fieldPos); got != 10 {
		t.Fatalf("id 1 fieldPos = %d, want 10", got)
	}

	if got := getField(t, s, 3, fieldPos); got != 30 {
		t.Fatalf("id 3 fieldPos = %d, want 30", got)
	}
}

func Test_Defragment_Stops_In_Place_When_A_Move_Is_Blocked(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 2, fieldPos, 20)
	setField(t, s, 3, fieldPos, 30)

	if err := s.DestroySector(1); err != nil {
		t.Fatalf("DestroySector: %v", err)
	}

	// id 2 would need to move into id 1's dead slot, but it's pinned.
	pin, err := s.Pin(2)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	defer pin.Release()

	if s.Defragment() {
		t.Fatalf("expected Defragment to stop short with a pinned sector in the way")
	}

	// The only gap in this store is the one the pin blocks, so nothing was
	// safe to commit before hitting it: all three sectors are still present,
	// dead one still dead, exactly where Defragment left off.
	if got := s.Size(); got != 3 {
		t.Fatalf("Size = %d, want 3 (unchanged)", got)
	}

	if got := getField(t, s, 2, fieldPos); got != 20 {
		t.Fatalf("id 2 fieldPos = %d, want 20 (unchanged)", got)
	}

	if got := getField(t, s, 3, fieldPos); got != 30 {
		t.Fatalf("id 3 fieldPos = %d, want 30 (unchanged)", got)
	}
}

func Test_Defragment_Makes_Progress_Across_Calls_As_Pins_Are_Released(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	for id := sectorstore.EntityID(1); id <= 5; id++ {
		setField(t, s, id, fieldPos, uint64(id)*10)
	}

	if err := s.DestroySector(1); err != nil {
		t.Fatalf("DestroySector(1): %v", err)
	}

	if err := s.DestroySector(3); err != nil {
		t.Fatalf("DestroySector(3): %v", err)
	}

	pin, err := s.Pin(2)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}

	// id 1's gap is the first one Defragment reaches, and closing it needs
	// to move id 2 down — blocked while id 2 is pinned. id 3's gap further
	// along is left untouched too: the pass never gets that far.
	if s.Defragment() {
		t.Fatalf("expected Defragment to stop short with id 2 pinned")
	}

	if got := s.Size(); got != 5 {
		t.Fatalf("Size = %d, want 5 (unchanged)", got)
	}

	pin.Release()

	// With the blocking pin gone, a later call picks up exactly where the
	// first left off and finishes the whole pack in one pass.
	if !s.Defragment() {
		t.Fatalf("expected Defragment to complete once id 2 is unpinned")
	}

	if got := s.Size(); got != 3 {
		t.Fatalf("Size = %d, want 3", got)
	}

	if got := getField(t, s, 2, fieldPos); got != 20 {
		t.Fatalf("id 2 fieldPos = %d, want 20", got)
	}

	if got := getField(t, s, 4, fieldPos); got != 40 {
		t.Fatalf("id 4 fieldPos = %d, want 40", got)
	}

	if got := getField(t, s, 5, fieldPos); got != 50 {
		t.Fatalf("id 5 fieldPos = %d, want 50", got)
	}

	if s.Contains(1) {
		t.Fatalf("id 1 should have been reclaimed")
	}

	if s.Contains(3) {
		t.Fatalf("id 3 should have been reclaimed")
	}
}

func Test_TryDefragment_Skips_Movability_Check_When_Nothing_Pinned(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 2, fieldPos, 20)

	if err := s.DestroySector(1); err != nil {
		t.Fatalf("DestroySector: %v", err)
	}

	if !s.TryDefragment() {
		t.Fatalf("TryDefragment should always succeed when nothing is pinned")
	}

	if got := s.Size(); got != 1 {
		t.Fatalf("Size = %d, want 1", got)
	}
}

func Test_Clone_Deep_Copies_Live_Sectors(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 2, fieldPos, 20)

	clone, err := s.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	setField(t, s, 1, fieldPos, 999)

	if got := getField(t, clone, 1, fieldPos); got != 10 {
		t.Fatalf("clone fieldPos = %d, want 10 (independent of source mutation)", got)
	}

	if got := clone.Size(); got != 2 {
		t.Fatalf("clone Size = %d, want 2", got)
	}
}

func Test_Clone_Fails_For_Move_Only_Layout(t *testing.T) {
	t.Parallel()

	s, err := sectorstore.New(sectorstore.LayoutSpec{
		Components: []sectorstore.ComponentDesc{
			{Size: 8, Align: 8, Move: func(dst, src unsafe.Pointer) {}, Drop: func(unsafe.Pointer) {}},
		},
	}, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := s.Clone(); !errors.Is(err, sectorstore.ErrCopyUnsupported) {
		t.Fatalf("got %v, want ErrCopyUnsupported", err)
	}
}

func Test_Take_Absorbs_Other_And_Resets_It_To_Empty(t *testing.T) {
	t.Parallel()

	a := newTwoFieldStore(t)
	b := newTwoFieldStore(t)

	setField(t, b, 1, fieldPos, 10)
	setField(t, b, 2, fieldPos, 20)

	a.Take(b)

	if got := a.Size(); got != 2 {
		t.Fatalf("a.Size = %d, want 2", got)
	}

	if got := getField(t, a, 1, fieldPos); got != 10 {
		t.Fatalf("a id 1 fieldPos = %d, want 10", got)
	}

	if !b.IsEmpty() {
		t.Fatalf("expected b reset to empty after Take")
	}

	// b must still be usable.
	setField(t, b, 5, fieldPos, 50)

	if got := b.Size(); got != 1 {
		t.Fatalf("b.Size after reuse = %d, want 1", got)
	}
}

func Test_Reserve_Grows_Capacity_Without_Changing_Size(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	s.Reserve(100)

	if got := s.Size(); got != 0 {
		t.Fatalf("Size = %d, want 0", got)
	}

	if got := s.Capacity(); got < 100 {
		t.Fatalf("Capacity = %d, want at least 100", got)
	}
}

func Test_Clear_Drops_Everything(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 1, fieldPos, 10)
	setField(t, s, 2, fieldPos, 20)

	s.Clear()

	if got := s.Size(); got != 0 {
		t.Fatalf("Size = %d, want 0", got)
	}

	if s.Contains(1) {
		t.Fatalf("expected id 1 gone after Clear")
	}

	// The store must still be usable after Clear.
	setField(t, s, 1, fieldPos, 99)

	if got := getField(t, s, 1, fieldPos); got != 99 {
		t.Fatalf("fieldPos = %d, want 99", got)
	}
}

func Test_Pin_Get_Resolves_The_Pinned_Sector_After_A_Later_Insert(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	setField(t, s, 5, fieldPos, 50)

	pin, err := s.Pin(5)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	defer pin.Release()

	setField(t, s, 7, fieldPos, 70) // inserts after 5, so it never needs to move the pinned sector

	ref, ok := pin.Get()
	if !ok {
		t.Fatalf("expected pinned sector still resolvable")
	}

	if ref.ID() != 5 {
		t.Fatalf("ID = %d, want 5", ref.ID())
	}
}

func Test_Many_Inserts_Then_Erases_Keep_Sorted_Order(t *testing.T) {
	t.Parallel()

	s := newTwoFieldStore(t)

	ids := []sectorstore.EntityID{10, 3, 7, 1, 9, 5, 2, 8, 4, 6}
	for _, id := range ids {
		setField(t, s, id, fieldPos, uint64(id)*10)
	}

	if err := s.EraseAsync(5); err != nil {
		t.Fatalf("EraseAsync(5): %v", err)
	}

	if err := s.EraseAsync(1); err != nil {
		t.Fatalf("EraseAsync(1): %v", err)
	}

	var prev sectorstore.EntityID
	first := true
	count := 0

	for ref := range s.Iter() {
		if !first && ref.ID() <= prev {
			t.Fatalf("dense array out of order: %d after %d", ref.ID(), prev)
		}

		prev = ref.ID()
		first = false
		count++
	}

	if got, want := count, 8; got != want {
		t.Fatalf("count = %d, want %d", got, want)
	}

	if s.Contains(5) || s.Contains(1) {
		t.Fatalf("expected erased ids gone")
	}
}
