package main

// Device registry: a name+instance catalog mapping to open functions.
// registerDevice stores an open function per name, openDevice looks one up
// by (name, instance), and parseDeviceSpec splits a "name+digits" spec
// string, used by devopen and by boot-time device attachment.
type deviceOpenFn func(instance int) (ioRef, int)

type deviceCatalogEntry struct {
	name string
	open deviceOpenFn
}

var deviceCatalog [NDEV]deviceCatalogEntry
var deviceCatalogCount int

// registerDevice adds a name → open function entry to the catalog.
func registerDevice(name string, open deviceOpenFn) int {
	if deviceCatalogCount >= NDEV {
		return -ENOMEM
	}
	deviceCatalog[deviceCatalogCount] = deviceCatalogEntry{name: name, open: open}
	deviceCatalogCount++
	return 0
}

// openDevice looks up name in the catalog and calls its open function with
// the requested instance number.
func openDevice(name string, instance int) (ioRef, int) {
	for i := 0; i < deviceCatalogCount; i++ {
		if deviceCatalog[i].name == name {
			return deviceCatalog[i].open(instance)
		}
	}
	return ioRef{}, -ENODEV
}

// parseDeviceSpec splits a device spec string ("uart0", "vioblk1") into a
// name and an instance number: one or more non-digit characters followed
// by one or more decimal digits. Returns -EINVAL if malformed.
func parseDeviceSpec(spec string) (name string, instance int, rc int) {
	i := 0
	for i < len(spec) && (spec[i] < '0' || spec[i] > '9') {
		i++
	}
	if i == 0 || i == len(spec) {
		return "", 0, -EINVAL
	}
	name = spec[:i]
	instance = 0
	for ; i < len(spec); i++ {
		if spec[i] < '0' || spec[i] > '9' {
			return "", 0, -EINVAL
		}
		instance = instance*10 + int(spec[i]-'0')
	}
	return name, instance, 0
}

// devmgrInit registers the device catalog entries this kernel ships:
// uart, vioblk, rtc, rng.
func devmgrInit() {
	registerDevice("uart", func(instance int) (ioRef, int) {
		if instance < 0 || instance >= NUART {
			return ioRef{}, -ENODEV
		}
		return createTerminalIO(newIoRef(&uartEndpoint{instance: instance}, nil)), 0
	})
	registerDevice("vioblk", func(instance int) (ioRef, int) {
		if instance < 0 || instance >= NVIRTIO || vioblkDevices[instance] == nil {
			return ioRef{}, -ENODEV
		}
		return newIoRef(&vioblkEndpoint{dev: vioblkDevices[instance]}, nil), 0
	})
	registerDevice("rtc", func(instance int) (ioRef, int) {
		if instance != 0 {
			return ioRef{}, -ENODEV
		}
		return newIoRef(&rtcEndpoint{}, nil), 0
	})
	registerDevice("rng", func(instance int) (ioRef, int) {
		if instance != 0 {
			return ioRef{}, -ENODEV
		}
		return newIoRef(&rngEndpoint{}, nil), 0
	})
}
