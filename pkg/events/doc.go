// Package events provides a channel-based broker distributing core
// lifecycle events (session, entry and sync transitions) to UI
// subscribers. Slow subscribers are skipped rather than blocking the
// publisher.
package events
