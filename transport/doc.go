/*
Package transport performs a single asynchronous HTTP GET or multipart POST, buffering the response in memory and reporting progress, completion, failure, timeout or cancellation to a [Delegate].

A [Request] is single-use and moves through a small state machine:

	idle → connecting → transferring → completed | failed | timed_out | canceled

[Request.GET] and [Request.POST] return immediately after the transfer has been started in the background. They return false if the request was already started. A timer is armed at start; the deadline is fixed (receiving data does not extend it), so a slow but healthy transfer can still time out.

Notifications are delivered in order from one goroutine per request. Zero or more progress notifications are followed by exactly one terminal notification. Whichever terminal event happens first (completion, failure, timer, or [Request.Cancel]) wins; the others are dropped. Cancel and the timer share a lock with progress delivery: a progress notification is either handed to the delegate before the request was canceled or timed out, or dropped. Once Cancel returns, nothing more is handed over; a progress callback handed over just before may still be running (it may be the one calling Cancel). The cancel notification follows it.

Delegates typically embed [NopDelegate] and override only the methods they need.
*/
package transport
