package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any collection query can request.
	MaxLimit = 500
)

// Params holds offset pagination inputs from controllers or services.
// A zero Limit means "no explicit page" and is normalized to DefaultLimit.
type Params struct {
	Limit  int
	Offset int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize clamps both limit and offset into their valid ranges.
func (p Params) Normalize() Params {
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: NormalizeLimit(p.Limit), Offset: offset}
}

// Window returns the [start, end) bounds of the page over a collection of size total.
func (p Params) Window(total int) (int, int) {
	n := p.Normalize()
	start := n.Offset
	if start > total {
		start = total
	}
	end := start + n.Limit
	if end > total {
		end = total
	}
	return start, end
}

// Slice returns the page of items selected by p.
func Slice[T any](items []T, p Params) []T {
	start, end := p.Window(len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}
