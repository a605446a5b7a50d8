package netutils

// GetAdvertiseAddress resolves the address other nodes should use to reach
// this host. A concrete bind address is used as-is; an inaddr_any bind
// falls back to the system's outbound interface address.
func GetAdvertiseAddress(bindAddress string) (string, error) {
	if !IsInAddrAny(bindAddress) {
		return bindAddress, nil
	}

	outboundIP, err := GetOutboundIP()
	if err != nil {
		return "", err
	}

	return outboundIP.String(), nil
}
