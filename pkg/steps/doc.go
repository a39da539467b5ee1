// Package steps declares what a provisioned host looks like.
//
// A Registry turns a ProvisioningConfig into the ordered list of
// engine.Steps that install the runtime, the database, nginx, PM2 and
// fail2ban, create the application account, open the firewall and write
// every rendered file. Each step pairs a precondition over host.State with
// an apply action that shells out to the system's own tools.
package steps
