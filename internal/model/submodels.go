package model

import "time"

// Filesystem mirrors the subset of FilesystemModel's state the install
// state machine and the storage endpoints need: the parsed disk layout is
// treated as an opaque collaborator (curtin's own config format), per this
// module's scope.
type Filesystem struct {
	Probed       bool
	CurtinConfig map[string]interface{}
}

// Identity mirrors subiquity's IdentityModel.
type Identity struct {
	Realname string
	Username string
	Hostname string
	// CryptedPassword is never logged or serialized back to a client.
	CryptedPassword string
}

// Keyboard mirrors subiquity's KeyboardModel.
type Keyboard struct {
	Layout  string
	Variant string
	Toggle  string
}

// Locale mirrors subiquity's LocaleModel.
type Locale struct {
	Selected string
}

// Mirror mirrors subiquity's MirrorModel.
type Mirror struct {
	URI string
}

// NetworkDevice is one probed or configured network interface.
type NetworkDevice struct {
	Name      string
	DHCP4     bool
	DHCP6     bool
	Addresses []string
	VLAN      *int
}

// Network mirrors subiquity's NetworkModel.
type Network struct {
	Devices []NetworkDevice
}

// Proxy mirrors subiquity's ProxyModel.
type Proxy struct {
	URL string
}

// SnapSelection is one entry of the snap list the user can add/remove
// before install.
type SnapSelection struct {
	Name    string
	Channel string
	Classic bool
}

// SnapList mirrors subiquity's SnapListModel.
type SnapList struct {
	Snaps []SnapSelection
}

// SSH mirrors subiquity's SSHModel.
type SSH struct {
	InstallServer    bool
	AllowPW          bool
	AuthorizedKeys   []string
	ImportIDs        []string
}

// Timezone mirrors subiquity's TimezoneModel.
type Timezone struct {
	TZ string
}

// Debconf mirrors subiquity's DebconfModel -- package selection
// questions answered non-interactively.
type Debconf struct {
	Selections map[string]string
}

// Source mirrors subiquity's SourceModel -- which base system variant is
// being installed.
type Source struct {
	CurrentID string
	SearchDrivers bool
}

// Kernel mirrors subiquity's KernelModel.
type Kernel struct {
	Package string
}

// Packages mirrors subiquity's PackagesModel -- extra packages to install
// after curtin finishes.
type Packages struct {
	Extra []string
}

// Userdata mirrors subiquity's UserdataModel -- opaque cloud-init
// userdata merged into the target's configuration.
type Userdata struct {
	Raw map[string]interface{}
}

// CloudInitConfig renders the subset of cloud-init configuration the
// postinstall stage writes into the target, grounded on
// SubiquityModel._cloud_init_config/_cloud_init_files.
func (m *Model) CloudInitConfig(now time.Time) map[string]interface{} {
	cfg := map[string]interface{}{
		"hostname": m.Identity.Hostname,
		"locale":   m.Locale.Selected,
	}
	if len(m.Userdata.Raw) > 0 {
		for k, v := range m.Userdata.Raw {
			cfg[k] = v
		}
	}
	return cfg
}
