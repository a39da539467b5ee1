package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		defaultSecretsPolicy(),
		databaseSafetyPolicy(),
		portSafetyPolicy(),
		accountSafetyPolicy(),
		hardeningPolicy(),
	}
}

// defaultSecretsPolicy flags placeholder secrets that reach the env file.
func defaultSecretsPolicy() Policy {
	return Policy{
		Name:        "default-secrets",
		Description: "Warns when the database password or session secret is still the shipped placeholder",
		Enabled:     true,
		Tags:        []string{"secrets"},
		Rego: `package hostkit.secrets

import rego.v1

warn contains violation if {
	input.config.database.password == "change-this-password"
	violation := {
		"message": "database password is the default placeholder",
		"key": "database.password",
		"remediation": "set HOSTKIT_DATABASE_PASSWORD or database.password",
	}
}

warn contains violation if {
	input.config.app.session_secret == "change-this-secret-in-production"
	violation := {
		"message": "session secret is the default placeholder",
		"key": "app.session_secret",
		"remediation": "replace SESSION_SECRET in the env file after provisioning",
	}
}

warn contains violation if {
	count(input.config.database.password) < 12
	input.config.database.password != "change-this-password"
	violation := {
		"message": "database password is shorter than 12 characters",
		"key": "database.password",
	}
}
`,
	}
}

// databaseSafetyPolicy keeps the application away from PostgreSQL's own
// databases and superuser.
func databaseSafetyPolicy() Policy {
	return Policy{
		Name:        "database-safety",
		Description: "Denies provisioning the application onto PostgreSQL system databases or roles",
		Enabled:     true,
		Tags:        []string{"database"},
		Rego: `package hostkit.database

import rego.v1

system_databases := {"postgres", "template0", "template1"}

deny contains violation if {
	system_databases[input.config.database.name]
	violation := {
		"message": sprintf("database %q is a PostgreSQL system database", [input.config.database.name]),
		"key": "database.name",
		"remediation": "choose an application-specific database name",
	}
}

deny contains violation if {
	input.config.database.user == "postgres"
	violation := {
		"message": "the application role must not be the postgres superuser",
		"key": "database.user",
	}
}

deny contains violation if {
	not local_host(input.config.database.host)
	violation := {
		"message": sprintf("database host %q is not local; client auth is only configured for 127.0.0.1", [input.config.database.host]),
		"key": "database.host",
		"remediation": "use localhost, or manage a remote database outside hostkit",
	}
}

local_host(h) if h == "localhost"

local_host(h) if h == "127.0.0.1"

local_host(h) if h == "::1"
`,
	}
}

// portSafetyPolicy rejects application ports that collide with services
// hostkit itself configures.
func portSafetyPolicy() Policy {
	return Policy{
		Name:        "port-safety",
		Description: "Denies application ports used by SSH, nginx or PostgreSQL",
		Enabled:     true,
		Tags:        []string{"network"},
		Rego: `package hostkit.ports

import rego.v1

reserved(22) := "ssh"

reserved(80) := "nginx"

reserved(443) := "nginx"

reserved(5432) := "postgresql"

deny contains violation if {
	service := reserved(input.config.app.port)
	violation := {
		"message": sprintf("application port %d is used by %s", [input.config.app.port, service]),
		"key": "app.port",
	}
}

warn contains violation if {
	input.config.app.port < 1024
	not reserved(input.config.app.port)
	violation := {
		"message": sprintf("application port %d is privileged; the app user cannot bind it", [input.config.app.port]),
		"key": "app.port",
	}
}
`,
	}
}

// accountSafetyPolicy keeps the application account and directories away
// from system locations.
func accountSafetyPolicy() Policy {
	return Policy{
		Name:        "account-safety",
		Description: "Denies running the application as root or installing it into system directories",
		Enabled:     true,
		Tags:        []string{"accounts", "filesystem"},
		Rego: `package hostkit.accounts

import rego.v1

system_prefixes := ["/bin", "/boot", "/dev", "/etc", "/lib", "/proc", "/root", "/sbin", "/sys", "/usr"]

deny contains violation if {
	input.config.app.user == "root"
	violation := {
		"message": "the application must not run as root",
		"key": "app.user",
	}
}

deny contains violation if {
	some key in ["dir", "log_dir"]
	path := input.config.app[key]
	some prefix in system_prefixes
	under(path, prefix)
	violation := {
		"message": sprintf("app.%s %q is inside %s", [key, path, prefix]),
		"key": sprintf("app.%s", [key]),
	}
}

deny contains violation if {
	path := input.config.backup.dir
	some prefix in system_prefixes
	under(path, prefix)
	violation := {
		"message": sprintf("backup.dir %q is inside %s", [path, prefix]),
		"key": "backup.dir",
	}
}

under(path, prefix) if path == prefix

under(path, prefix) if startswith(path, concat("", [prefix, "/"]))
`,
	}
}

// hardeningPolicy warns about settings that weaken the host.
func hardeningPolicy() Policy {
	return Policy{
		Name:        "hardening",
		Description: "Warns about lax fail2ban and backup retention settings",
		Enabled:     true,
		Tags:        []string{"hardening"},
		Rego: `package hostkit.hardening

import rego.v1

warn contains violation if {
	input.config.fail2ban.maxretry > 10
	violation := {
		"message": sprintf("fail2ban maxretry %d allows many attempts before a ban", [input.config.fail2ban.maxretry]),
		"key": "fail2ban.maxretry",
	}
}

warn contains violation if {
	input.config.fail2ban.bantime < 600
	violation := {
		"message": sprintf("fail2ban bantime %ds is short", [input.config.fail2ban.bantime]),
		"key": "fail2ban.bantime",
	}
}

warn contains violation if {
	input.config.backup.retention_days < 3
	violation := {
		"message": sprintf("backups are kept for only %d days", [input.config.backup.retention_days]),
		"key": "backup.retention_days",
	}
}
`,
	}
}
