package catalog

// Columns sadf -d emits ahead of every activity's own columns.
var (
	sampleIndex = []string{"timestamp"}
	sampleSkip  = []string{"hostname", "interval"}
)

func perEntity(column string) *PivotSpec {
	return &PivotSpec{
		Index:  append([]string(nil), sampleIndex...),
		Entity: []string{column},
		Skip:   append([]string(nil), sampleSkip...),
	}
}

// sysstatDefinitions lists the sadf activities extracted by default, one
// output table per entry. "-n ALL" and "-u ALL"/"-C" are left out: they mix
// several column layouts into a single table that dashboards cannot query.
func sysstatDefinitions() []MetricDefinition {
	return []MetricDefinition{
		{Label: "io", Selector: []string{"-b"}},
		{Label: "paging", Selector: []string{"-B"}},
		{Label: "disk", Selector: []string{"-d"}, Pivot: perEntity("DEV")},
		{Label: "filesystem", Selector: []string{"-F"}, Pivot: perEntity("FILESYSTEM")},
		{Label: "hugepages", Selector: []string{"-H"}},
		{Label: "interrupts", Selector: []string{"-I", "ALL"}, Pivot: perEntity("INTR")},
		{Label: "power", Selector: []string{"-m", "ALL"}},
		{Label: "network_dev", Selector: []string{"-n", "DEV"}, Pivot: perEntity("IFACE")},
		{Label: "network_edev", Selector: []string{"-n", "EDEV"}, Pivot: perEntity("IFACE")},
		{Label: "network_fc", Selector: []string{"-n", "FC"}, Pivot: perEntity("FCHOST")},
		{Label: "network_icmp", Selector: []string{"-n", "ICMP"}},
		{Label: "network_eicmp", Selector: []string{"-n", "EICMP"}},
		{Label: "network_icmp6", Selector: []string{"-n", "ICMP6"}},
		{Label: "network_eicmp6", Selector: []string{"-n", "EICMP6"}},
		{Label: "network_ip", Selector: []string{"-n", "IP"}},
		{Label: "network_eip", Selector: []string{"-n", "EIP"}},
		{Label: "network_ip6", Selector: []string{"-n", "IP6"}},
		{Label: "network_eip6", Selector: []string{"-n", "EIP6"}},
		{Label: "network_nfs", Selector: []string{"-n", "NFS"}},
		{Label: "network_nfsd", Selector: []string{"-n", "NFSD"}},
		{Label: "network_sock", Selector: []string{"-n", "SOCK"}},
		{Label: "network_sock6", Selector: []string{"-n", "SOCK6"}},
		{Label: "network_tcp", Selector: []string{"-n", "TCP"}},
		{Label: "network_etcp", Selector: []string{"-n", "ETCP"}},
		{Label: "network_udp", Selector: []string{"-n", "UDP"}},
		{Label: "network_udp6", Selector: []string{"-n", "UDP6"}},
		{Label: "per_cpu", Selector: []string{"-P", "ALL"}, Pivot: perEntity("CPU")},
		{Label: "queue", Selector: []string{"-q", "ALL"}},
		{Label: "memory", Selector: []string{"-r", "ALL"}},
		{Label: "swap_util", Selector: []string{"-S"}},
		{Label: "inode", Selector: []string{"-v"}},
		{Label: "swap", Selector: []string{"-W"}},
		{Label: "task", Selector: []string{"-w"}},
		{Label: "tty", Selector: []string{"-y"}, Pivot: perEntity("TTY")},
	}
}

// Default returns the built-in sysstat catalog.
func Default() *Catalog {
	c, err := New(sysstatDefinitions()...)
	if err != nil {
		// The built-in table is covered by tests; failing here is a programming error
		panic("catalog: invalid built-in definitions: " + err.Error())
	}
	return c
}
