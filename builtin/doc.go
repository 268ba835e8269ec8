// Package builtin provides the service types and interceptors that ship with
// the servicekit binary.
//
// Service types:
//
//	sink    counts and logs payloads arriving at "in"; the custom action
//	        reset clears the counter of a running sink
//	relay   forwards "in" to "out"
//	ticker  emits a Tick through "out" every interval while running
//
// Interceptors:
//
//	logging     logs each payload, attribute level selects the record level
//	rate-limit  drops payloads above rate per second, burst defaults to 1
//
// A configuration wiring them together:
//
//	services:
//	  clock:
//	    type: ticker
//	    autostart: true
//	    interval: 500ms
//	    endpoints:
//	      out: service(counter).in
//	  counter:
//	    type: sink
//	    autostart: true
//	    endpoints:
//	      in:
//	        interceptors:
//	          - logging
//	          - type: rate-limit
//	            rate: 1
//	            burst: 2
package builtin
