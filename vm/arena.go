package vm

// arena stores the bullets of a System in a flat slot array. Removed slots
// go on a free list and are reused with a bumped generation, so stale
// BulletIDs stop resolving.
type arena struct {
	slots []slot
	free  []uint32
	live  int
}

type slot struct {
	gen    uint32
	bullet *Bullet
}

func (a *arena) insert(b *Bullet) BulletID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{gen: 1})
	}
	a.slots[idx].bullet = b
	b.ID = BulletID{index: idx, gen: a.slots[idx].gen}
	a.live++
	return b.ID
}

func (a *arena) get(id BulletID) *Bullet {
	if !id.Valid() || int(id.index) >= len(a.slots) {
		return nil
	}
	s := a.slots[id.index]
	if s.gen != id.gen {
		return nil
	}
	return s.bullet
}

func (a *arena) remove(id BulletID) {
	if a.get(id) == nil {
		return
	}
	s := &a.slots[id.index]
	s.bullet = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, id.index)
	a.live--
}

func (a *arena) len() int { return a.live }

// each visits live bullets in slot order. Bullets inserted during the walk
// are not visited.
func (a *arena) each(fn func(*Bullet) error) error {
	n := len(a.slots)
	for i := 0; i < n; i++ {
		if b := a.slots[i].bullet; b != nil {
			if err := fn(b); err != nil {
				return err
			}
		}
	}
	return nil
}
