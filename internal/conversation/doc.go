// Package conversation keeps bounded, per-chat message histories in memory.
//
// Histories are windows of the most recent turns: appending beyond a chat's
// capacity evicts the oldest turn. Nothing is persisted across restarts.
package conversation
