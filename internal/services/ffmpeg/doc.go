// Package ffmpeg extracts still frames from video clips with the ffmpeg CLI.
//
// Video fingerprints and OpenAI descriptions are computed from a single frame.
// The extractor first grabs the frame one second in, which skips black intro
// frames, and falls back to the very first frame for clips shorter than that.
package ffmpeg
