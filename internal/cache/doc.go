// Package cache holds the short-lived asset store behind /uploads. Assets live
// as flat files StoragePath/<id><ext>; the directory listing is the only source
// of truth. Writes go through a hidden temp file that is hard-linked into place
// once complete, so readers never observe partial payloads, and a TTL sweep
// reclaims files whose modification time is older than the retention window.
package cache
