// Package panodecode decodes high-dynamic-range panoramas into linear-light pixel buffers.
//
// Two formats are supported: Radiance RGBE (.hdr, 32-bit RLE variant) and scanline OpenEXR
// (.exr, uncompressed, ZIPS or ZIP). Images are decoded at a size chosen from a quality tier
// and the renderer's texture limit, then packed as half-float RGB or tone-mapped RGBA8.
// Decoding runs off the caller's goroutine through an Orchestrator.
package panodecode
