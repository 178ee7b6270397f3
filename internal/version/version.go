// ABOUTME: Build identification constants
// ABOUTME: Used for the device descriptor sent in the protocol hello
package version

const (
	// Product is the product name reported to servers
	Product = "Sendspin Client"

	// Manufacturer is the manufacturer reported to servers
	Manufacturer = "Sendspin"

	// Version is the software version reported to servers
	Version = "0.3.0"
)
