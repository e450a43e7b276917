// Package apidef provides API definition metadata and callback maps.
//
// An index file lists the API definitions a test plan may target. Each
// asynchronous definition points at a callback map, which tells the
// dispatcher which success and error callbacks answer an operation:
//
//	"/parties/{Type}/{ID}":
//	  get:
//	    successCallback:
//	      method: put
//	      pathPattern: /parties/{$request.params.Type}/{$request.params.ID}
//	    errorCallback:
//	      method: put
//	      pathPattern: /parties/{$request.params.Type}/{$request.params.ID}/error
package apidef
