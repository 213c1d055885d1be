// Package store persists what a trialstream server receives.
//
// Control events and accepted array headers are appended, one JSON object
// per line, to control_events.jsonl and array_headers.jsonl. Each accepted
// binary payload becomes an .npy artifact written by an ArtifactStore:
//
//	<data dir>/<name>/<name>_trial<N>_<YYYYMMDD_HHMMSS>_<micros>.npy
//
// DiskStore writes artifacts under the data directory; S3Store writes them
// to a bucket under the same relative keys. A RedisMirror can additionally
// publish every persisted line to a Redis stream for live dashboards.
//
// Recorder ties the three together and is what the server writes through.
// All appends are single writes under a mutex, so concurrent sessions never
// produce torn lines.
package store
