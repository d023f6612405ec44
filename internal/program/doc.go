// Package program loads program sources into ordered tasks.
//
// Two encodings are supported. The line format (version 1) holds one record
// per line:
//
//	# comment
//	version 1
//	increment 0
//	sleep 25ms
//	fail disk on fire
//
// Blank lines and comments are not records. The optional version directive
// must come before the first record. The YAML format holds the same records
// as a document:
//
//	version: 1
//	tasks:
//	  - kind: increment
//	    args: ["0"]
//
// A program is parsed fully before it is returned; the first bad record
// aborts the load with a *MalformedProgramError.
package program
