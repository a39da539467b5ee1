// Package templates renders the files a provisioning run writes: the env
// file, the PM2 ecosystem file, the nginx site, logrotate rules, the
// fail2ban jail, the backup schedule and the backup, status and update
// scripts.
//
// Render is pure. Templates run through text/template with sprig's pure
// functions, and every output is checked for its Kind before it is
// returned: shell scripts must parse as bash, env files must parse back
// to the configured values.
//
// Built-in bodies are embedded from files/. A directory of <name>.tmpl
// files, searched recursively, replaces bodies by name.
package templates
