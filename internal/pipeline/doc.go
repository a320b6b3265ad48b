// Package pipeline implements the local media stages: source concatenation,
// subtitle burn-in, music preparation and muxing, and picture-in-picture
// compositing. Every stage drives ffmpeg through the command.Runner
// abstraction so tests assert on constructed argument lists instead of real
// media output.
package pipeline
