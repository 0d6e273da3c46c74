// Package device defines the Bluetooth Low Energy capability the rest of
// blesail depends on: selecting a peripheral, opening a GATT connection,
// resolving services and characteristics, and enabling notifications.
//
// The package holds only interfaces, filters and the error taxonomy:
//   - DeviceSelectionError when no peripheral is chosen
//   - ConnectionError for link level failures
//   - ResolutionError when a service or characteristic is missing
//
// Concrete backends live in subpackages (go-ble) and in the simulator.
package device
