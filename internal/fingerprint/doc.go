// Package fingerprint computes 64-bit perceptual hashes for catalog media.
//
// Images are decoded with the standard library and golang.org/x/image
// codecs, flattened onto a white background and hashed with goimagehash's
// pHash. Videos are reduced to a single frame through a FrameExtractor first.
// Every failure is reported as a *DecodeError carrying the input size and the
// stage that failed.
package fingerprint
