/*
Asynchronous API invocations and photo uploads for Flickr-compatible REST services.

An [Invocation] drives one API call at a time: it builds the signed request from an [apicontext.Context], starts a [transport.Request], decodes the XML response with package xmldoc, and delivers exactly one terminal outcome. [Invocation.Call] returns as soon as the connection attempt has been started; results arrive later on the invocation's delivery stream.

Notifications for one invocation never overlap. A new call is accepted once the previous call's outcome has been delivered, or from inside that outcome's callback, which is how calls are chained; the chained call's notifications start after the callback returns.

Results are routed in one of two ways, mirroring the two common callback styles:

  - a [Delegate] (set with [WithDelegate]) receives InvocationDidFetch or InvocationDidFail
  - a [CallbackFunc] passed to [Invocation.CallFunc] receives (invocation, code, data), where code 0 means data is an [xmldoc.Document], a positive code means data is the remote error message, and a negative code means data is the underlying error (or nil)

Progress always goes to the delegate, whichever style is used. Delegates can embed [NopDelegate] to pick only the methods they care about.

Failures are reported as [*Error]. Positive codes come from the remote API; negative codes are internal: [ErrCodeConnection], [ErrCodeTimeout], [ErrCodeCanceled] and [ErrCodeMalformed]. Nothing is retried automatically.

An [Uploader] does the same for the multipart upload endpoint, reporting bytes sent and the new photo ID (or async ticket ID) to an [UploadDelegate].

Invocations and uploaders are independent of each other and may run concurrently. They only share the read-mostly [apicontext.Context].
*/
package client
