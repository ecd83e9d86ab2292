// Package meeting provides platform detection for supported meeting
// products and the URL normalization used to match a live page against a
// stored backup.
package meeting
