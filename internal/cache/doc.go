// Package cache provides the bounded LRU used to cap open region handles.
package cache
