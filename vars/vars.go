// Package vars publishes the process-wide expvar counters every instance
// and protocol engine bumps: messages routed through the broker, holders
// currently alive, and ASD resend activity.
package vars

import (
	"expvar"
	"time"

	kexpvar "github.com/rrrd/rrr/expvar"
)

const (
	HostVarName    = "host"
	ProductVarName = "product"
	VersionVarName = "version"

	NumInstancesVarName    = "num_instances"
	NumHoldersAliveVarName = "num_holders_alive"
	NumMessagesInVarName   = "num_messages_in"
	NumMessagesOutVarName  = "num_messages_out"
	NumASDResendsVarName   = "num_asd_resends"

	UptimeVarName = "uptime"

	// Product is the name this daemon publishes itself under.
	Product = "rrr"
)

var (
	// Global expvars
	NumInstancesVar    = &kexpvar.Int{}
	NumHoldersAliveVar = &kexpvar.Int{}
	NumMessagesInVar   = kexpvar.NewIntSum()
	NumMessagesOutVar  = kexpvar.NewIntSum()
	NumASDResendsVar   = &kexpvar.Int{}

	HostVar    = &kexpvar.String{}
	ProductVar = &kexpvar.String{}
	VersionVar = &kexpvar.String{}
)

var startTime time.Time

func init() {
	startTime = time.Now().UTC()

	expvar.Publish(NumInstancesVarName, NumInstancesVar)
	expvar.Publish(NumHoldersAliveVarName, NumHoldersAliveVar)
	expvar.Publish(NumMessagesInVarName, NumMessagesInVar)
	expvar.Publish(NumMessagesOutVarName, NumMessagesOutVar)
	expvar.Publish(NumASDResendsVarName, NumASDResendsVar)

	expvar.Publish(HostVarName, HostVar)
	expvar.Publish(ProductVarName, ProductVar)
	ProductVar.Set(Product)
}

func Uptime() time.Duration {
	return time.Since(startTime)
}
