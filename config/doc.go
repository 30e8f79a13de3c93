// Package config loads the YAML configuration of the jsirun CLI.
//
//	log:
//	  level: info
//	  development: false
//	scheduler:
//	  bind: true
//	  default_priority: normal   # or 1..5
//	natives:
//	  enabled: true
//	  namespace: native
//	guest:
//	  module: heap.wasm          # optional
//	  memory: memory
//	  allocator: cabi_realloc
package config
