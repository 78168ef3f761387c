// Package config loads the YAML configuration shared by
// the binaries and converts its sections into the
// settings of each operation.
//
// Every field has a default; a configuration file only
// needs the keys it changes. Unknown keys are rejected.
//
//	integrity:
//	  file: /etc/passwd
//	  sidecar: "{path}.sha1"
//	  format: hex
//	backup:
//	  source: best_folder_ever_made
//	  dest: super_secure_folder
//	  on_error: stop
//	monitor:
//	  files: [/etc/passwd, /etc/group]
//	  backup_dir: /var/backups/watched
//	  interval: 10s
//	  restore: true
package config
