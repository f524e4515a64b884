// Package watcher defines the boundary to the file-arrival watcher and its
// in-process fsnotify implementation.
//
// A Boundary publishes Signals on a multicast stream without replay. Data
// signals carry one FileAddedEvent, error signals carry a classified
// *coreerr.Error and leave the stream open, and a done signal means the
// watching session ended on its own. Subscribers must also treat a closed
// channel as done.
package watcher
