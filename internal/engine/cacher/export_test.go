package cacher

// Claim marks hash as being evicted, as a sweep does, and returns the
// function that ends the claim.
func (c *Cacher) Claim(hash string) (release func(), ok bool) {
	if c.claim(hash) != claimEvict {
		return nil, false
	}
	return func() { c.release(hash) }, true
}
