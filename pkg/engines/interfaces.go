// Package engines defines the narrow adapter contracts for the external
// collaborators (the infrastructure provisioning engine and the
// configuration-management engine) plus the CLI-backed implementations.
// The orchestration core depends only on these interfaces and never on a
// specific tool's output format.
package engines

import "context"

// ProvisionOutputs are the facts a successful provision run yields, derived
// from the engine's defined output queries.
type ProvisionOutputs struct {
	// PublicIP is the target's reachable address (`instance_public_ip`).
	PublicIP string

	// InstanceID identifies the compute resource (`instance_id`).
	InstanceID string

	// BucketName is the snapshot bucket (`s3_bucket_name`).
	BucketName string

	// SSHCommand is the engine's convenience connection string
	// (`ssh_command`). Informational only.
	SSHCommand string
}

// Provisioner allocates the target infrastructure.
type Provisioner interface {
	// Provision converges infrastructure to the declared definition and
	// returns the output facts. A non-success engine result is an error
	// carrying the engine's diagnostic text.
	Provision(ctx context.Context) (*ProvisionOutputs, error)

	// Outputs re-reads the output facts from the engine's state artifact
	// without converging anything.
	Outputs(ctx context.Context) (*ProvisionOutputs, error)
}

// Configurer installs and configures software on an already-provisioned
// target, addressed through the rendered inventory artifact.
type Configurer interface {
	// Configure runs the base-system task set (phase 2).
	Configure(ctx context.Context, inventoryPath string) error

	// Deploy runs the deployment-specific task set (phase 3).
	Deploy(ctx context.Context, inventoryPath string) error
}
