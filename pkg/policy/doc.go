// Package policy evaluates Open Policy Agent (OPA) policies against the
// provisioning configuration before anything touches the host.
//
// # Rules
//
// Every policy is a Rego module. The engine reads two sets from the
// module's package:
//
//   - deny: blocking findings. Any entry makes Result.Allowed false and
//     Result.Err a validation error with code POLICY_DENIED.
//   - warn: advisory findings, logged by the caller.
//
// Entries are strings or objects:
//
//	deny contains violation if {
//		input.config.app.user == "root"
//		violation := {"message": "the application must not run as root", "key": "app.user"}
//	}
//
// The input document has two keys: config, the complete
// ProvisioningConfig with its JSON field names, and context, describing
// the operation (apply, plan, validate), the target and whether the run is
// a dry run.
//
// # Built-in policies
//
//   - default-secrets: warns about placeholder secrets and short passwords
//   - database-safety: denies system databases, the postgres role and remote hosts
//   - port-safety: denies ports owned by ssh, nginx or PostgreSQL
//   - account-safety: denies root and system directories
//   - hardening: warns about lax fail2ban and backup settings
//
// Extra .rego files, or JSON files carrying a "rego" field, are loaded
// from the directory named by policy.dir.
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, cfg, policy.Context{Operation: "apply"})
//	if err != nil {
//	    return err
//	}
//	for _, w := range result.Warnings {
//	    logger.Warn().Str("policy", w.Policy).Msg(w.Message)
//	}
//	if err := result.Err(); err != nil {
//	    return err
//	}
package policy
