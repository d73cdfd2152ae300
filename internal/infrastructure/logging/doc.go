// Package logging is the controller's structured logger, a thin layer over
// log/slog.
//
// Every record carries service and version attributes. Output is JSON or
// text on stdout or stderr:
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr
//
// WithRing tees records into a logring.Ring, which backs the getLog call:
//
//	ring := logring.New(cfg.Controller.LogCapacity)
//	log := logging.New(cfg.Logging, version, logging.WithRing(ring))
//	log.Exception("device failed to initialise", err, "device_id", id)
//
// Exception and Panic attach a stack under the "exception" key. The primary
// output keeps it. The ring stores the record without the stack, followed
// by a redaction notice, so stack detail never leaves the process.
package logging
