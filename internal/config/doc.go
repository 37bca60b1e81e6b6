// Package config loads session options from HCL configuration files.
//
// A configuration file sets the same options the command line does:
//
//	crate_name   = "demo"
//	output_types = ["exe", "metadata"]
//	out_dir      = "build"
//	incremental  = ".incr"
//	crate_attrs  = ["feature(labels)"]
//
//	cfg "debug" {}
//	cfg "target_os" {
//	  value = "linux"
//	}
//
// Files are decoded with gohcl into a format-specific model, translated into
// session.Options, and finally merged with options given on the command
// line, which always win.
package config
