package accel

// MaxGroups bounds the number of work-groups of a single launch.
// Kernels cover the remainder of longer ranges with a grid-stride loop.
const MaxGroups = 1024

// Range is the launch geometry of one kernel invocation.
type Range struct {
	Offset int // global id of the first lane
	Global int // total number of lanes, a multiple of Local
	Local  int // lanes per work-group
}

// Groups returns the number of work-groups of the range.
func (r Range) Groups() int {
	if r.Local <= 0 {
		return 0
	}
	return r.Global / r.Local
}

// DivUpClamp returns ceil(n / d) clamped to [lo, hi].
func DivUpClamp(n, d, lo, hi int) int {
	v := (n + d - 1) / d
	return max(lo, min(v, hi))
}

// Geometry computes the launch geometry for n items starting at global id offset
// with work-groups of wgs lanes. The group count is never zero, so n == 0 still
// produces a valid launch, and it never exceeds MaxGroups.
func Geometry(n, wgs, offset int) Range {
	groups := DivUpClamp(n, wgs, 1, MaxGroups)
	return Range{
		Offset: offset,
		Global: groups * wgs,
		Local:  wgs,
	}
}
