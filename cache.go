package panodecode

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	format  Format
	digest  uint64
	size    int
	quality Quality
	maxTex  int
	target  Target
}

// resultCache keeps recent decode results keyed by content and request shape.
// A nil *resultCache is a valid, always-missing cache.
type resultCache struct {
	lru *lru.Cache[cacheKey, *DecodeResult]
}

func newResultCache(size int) (*resultCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[cacheKey, *DecodeResult](size)
	if err != nil {
		return nil, err
	}
	return &resultCache{lru: c}, nil
}

func (c *resultCache) key(req *DecodeRequest) cacheKey {
	return cacheKey{
		format:  req.Format,
		digest:  xxhash.Sum64(req.Data),
		size:    len(req.Data),
		quality: req.Quality,
		maxTex:  req.MaxTextureSize,
		target:  req.Target,
	}
}

// get returns a shallow copy of a cached result relabelled with id.
func (c *resultCache) get(k cacheKey, id string) (*DecodeResult, bool) {
	if c == nil {
		return nil, false
	}
	res, ok := c.lru.Get(k)
	if !ok {
		return nil, false
	}
	cp := *res
	cp.ID = id
	return &cp, true
}

func (c *resultCache) add(k cacheKey, res *DecodeResult) {
	if c == nil {
		return
	}
	c.lru.Add(k, res)
}
