/*
Package player holds the client-side playback heuristics: bandwidth
estimation with variant selection, and speculative segment prefetch.

These consume the streaming protocol; they own no server state. A client
embedding this package measures each segment download, asks the
estimator which quality tier to request next, and lets the preloader
warm the next few segments in the background.
*/
package player
