package errors

import "fmt"

// ModuleErrorKind enumerates module normalisation/instantiation failures.
type ModuleErrorKind string

const (
	ModuleInvalidBytes             ModuleErrorKind = "invalid_bytes"
	ModuleNormalisationFailed      ModuleErrorKind = "normalisation_failed"
	ModuleInstantiationFailed      ModuleErrorKind = "instantiation_failed"
	ModuleMissingImport            ModuleErrorKind = "missing_import"
	ModuleImportSignatureMismatch  ModuleErrorKind = "import_signature_mismatch"
)

// ModuleError reports a failure in the module normalisation or
// instantiation pipeline (spec section 7).
type ModuleError struct {
	Kind   ModuleErrorKind
	Detail string
	Cause  error
}

func (e *ModuleError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("module error [%s]: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("module error [%s]", e.Kind)
}

func (e *ModuleError) Unwrap() error { return e.Cause }

// NewModuleError builds a ModuleError.
func NewModuleError(kind ModuleErrorKind, detail string, cause error) *ModuleError {
	return &ModuleError{Kind: kind, Detail: detail, Cause: cause}
}

// ProcessErrorKind enumerates process termination/capability failures.
type ProcessErrorKind string

const (
	ProcessTrap                 ProcessErrorKind = "trap"
	ProcessKilled                ProcessErrorKind = "killed"
	ProcessCancelled             ProcessErrorKind = "cancelled"
	ProcessLimitExceeded         ProcessErrorKind = "limit_exceeded"
	ProcessCapabilityEscalation  ProcessErrorKind = "capability_escalation"
)

// ProcessError reports a process-level failure.
type ProcessError struct {
	Kind     ProcessErrorKind
	Reason   string // trap message, or the exceeded resource's name
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("process error [%s]: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("process error [%s]", e.Kind)
}

func (e *ProcessError) Unwrap() error { return e.Cause }

// NewProcessError builds a ProcessError.
func NewProcessError(kind ProcessErrorKind, reason string, cause error) *ProcessError {
	return &ProcessError{Kind: kind, Reason: reason, Cause: cause}
}

// MailboxErrorKind enumerates mailbox failures.
type MailboxErrorKind string

const (
	MailboxTimeout   MailboxErrorKind = "timeout"
	MailboxNoSenders MailboxErrorKind = "no_senders"
)

// MailboxError reports a failure receiving from a mailbox.
type MailboxError struct {
	Kind MailboxErrorKind
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("mailbox error [%s]", e.Kind)
}

// NewMailboxError builds a MailboxError.
func NewMailboxError(kind MailboxErrorKind) *MailboxError {
	return &MailboxError{Kind: kind}
}

// RegistryErrorKind enumerates registry lookup/registration failures.
type RegistryErrorKind string

const (
	RegistryNotFound         RegistryErrorKind = "not_found"
	RegistryVersionParseError RegistryErrorKind = "version_parse_error"
	RegistryAlreadyRegistered RegistryErrorKind = "already_registered"
)

// RegistryError reports a registry operation failure.
type RegistryError struct {
	Kind  RegistryErrorKind
	Name  string
	Cause error
}

func (e *RegistryError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("registry error [%s]: %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("registry error [%s]", e.Kind)
}

func (e *RegistryError) Unwrap() error { return e.Cause }

// NewRegistryError builds a RegistryError.
func NewRegistryError(kind RegistryErrorKind, name string, cause error) *RegistryError {
	return &RegistryError{Kind: kind, Name: name, Cause: cause}
}

// TransportErrorKind enumerates distributed node transport failures.
type TransportErrorKind string

const (
	TransportPeerUnreachable   TransportErrorKind = "peer_unreachable"
	TransportPeerDisconnected  TransportErrorKind = "peer_disconnected"
	TransportSerializationError TransportErrorKind = "serialization_error"
)

// TransportError reports a node-transport failure.
type TransportError struct {
	Kind  TransportErrorKind
	Peer  string
	Cause error
}

func (e *TransportError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("transport error [%s]: peer %s", e.Kind, e.Peer)
	}
	return fmt.Sprintf("transport error [%s]", e.Kind)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// NewTransportError builds a TransportError.
func NewTransportError(kind TransportErrorKind, peer string, cause error) *TransportError {
	return &TransportError{Kind: kind, Peer: peer, Cause: cause}
}

// Code maps an error from any of the taxonomies above to the syscall-style
// integer return code host functions hand back to guest code. 0 is success;
// every other taxonomy gets a distinct non-zero band so guest code can tell
// categories apart without inspecting strings.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	switch e := err.(type) {
	case *ModuleError:
		return 10 + moduleKindCode(e.Kind)
	case *ProcessError:
		return 20 + processKindCode(e.Kind)
	case *MailboxError:
		return 30 + mailboxKindCode(e.Kind)
	case *RegistryError:
		return 40 + registryKindCode(e.Kind)
	case *TransportError:
		return 50 + transportKindCode(e.Kind)
	default:
		return 1
	}
}

func moduleKindCode(k ModuleErrorKind) int32 {
	switch k {
	case ModuleInvalidBytes:
		return 1
	case ModuleNormalisationFailed:
		return 2
	case ModuleInstantiationFailed:
		return 3
	case ModuleMissingImport:
		return 4
	case ModuleImportSignatureMismatch:
		return 5
	default:
		return 0
	}
}

func processKindCode(k ProcessErrorKind) int32 {
	switch k {
	case ProcessTrap:
		return 1
	case ProcessKilled:
		return 2
	case ProcessCancelled:
		return 3
	case ProcessLimitExceeded:
		return 4
	case ProcessCapabilityEscalation:
		return 5
	default:
		return 0
	}
}

func mailboxKindCode(k MailboxErrorKind) int32 {
	switch k {
	case MailboxTimeout:
		return 1
	case MailboxNoSenders:
		return 2
	default:
		return 0
	}
}

func registryKindCode(k RegistryErrorKind) int32 {
	switch k {
	case RegistryNotFound:
		return 1
	case RegistryVersionParseError:
		return 2
	case RegistryAlreadyRegistered:
		return 3
	default:
		return 0
	}
}

func transportKindCode(k TransportErrorKind) int32 {
	switch k {
	case TransportPeerUnreachable:
		return 1
	case TransportPeerDisconnected:
		return 2
	case TransportSerializationError:
		return 3
	default:
		return 0
	}
}
