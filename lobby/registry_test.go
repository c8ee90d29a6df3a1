package lobby

import "testing"

func TestRegistryLazyCreateAppliesGivenPosition(t *testing.T) {
	rec := newSpriteRecorder()
	r := NewRegistry(rec.factory, 100, 100)

	e := r.Upsert(9, "Fox", 50, 60)
	if e.X != 50 || e.Y != 60 {
		t.Fatalf("pos = (%v, %v), want (50, 60)", e.X, e.Y)
	}
	if e.DisplayName != "Fox" {
		t.Fatalf("name = %q, want Fox", e.DisplayName)
	}
	if rec.sprites[9] == nil {
		t.Fatal("sprite not created on first sighting")
	}
}

func TestRegistryUpsertLastWins(t *testing.T) {
	rec := newSpriteRecorder()
	r := NewRegistry(rec.factory, 100, 100)

	// 任意次数、任意顺序的 upsert：显示名取最后一个非空值，坐标取最后一次
	r.Upsert(9, "Fox", 10, 10)
	r.Upsert(9, "", 20, 20)
	r.Upsert(9, "Wolf", 30, 30)
	r.Upsert(9, "", 40, 45)

	e := r.Get(9)
	if e.DisplayName != "Wolf" {
		t.Fatalf("name = %q, want last non-empty Wolf", e.DisplayName)
	}
	if e.X != 40 || e.Y != 45 {
		t.Fatalf("pos = (%v, %v), want (40, 45)", e.X, e.Y)
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestRegistryPlaceholderNameWhenUnknown(t *testing.T) {
	rec := newSpriteRecorder()
	r := NewRegistry(rec.factory, 100, 100)

	e := r.Upsert(5, "", 1, 2)
	if e.DisplayName != "玩家 5" {
		t.Fatalf("name = %q, want placeholder", e.DisplayName)
	}
	// 后续事件补上真名
	r.Upsert(5, "阿花", 1, 2)
	if e.DisplayName != "阿花" || rec.sprites[5].name != "阿花" {
		t.Fatalf("name not updated: entity=%q sprite=%q", e.DisplayName, rec.sprites[5].name)
	}
}

func TestRegistryRemoveDestroysSprite(t *testing.T) {
	rec := newSpriteRecorder()
	r := NewRegistry(rec.factory, 100, 100)

	r.Upsert(9, "Fox", 50, 60)
	if !r.Remove(9) {
		t.Fatal("remove returned false for existing entity")
	}
	if !rec.sprites[9].removed {
		t.Fatal("sprite not removed")
	}
	if r.Get(9) != nil || r.Len() != 0 {
		t.Fatal("entity still present after removal")
	}
	if r.Remove(9) {
		t.Fatal("remove of unknown id returned true")
	}
}
