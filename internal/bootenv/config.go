// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootenv

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML capability-toggle document from path.
func LoadConfig(path string) (Capabilities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Capabilities{}, fmt.Errorf("bootenv: reading config %s: %w", path, err)
	}

	caps := Capabilities{
		BootOSBatteryThreshold: 5,
	}

	if err := yaml.Unmarshal(data, &caps); err != nil {
		return Capabilities{}, fmt.Errorf("bootenv: parsing config %s: %w", path, err)
	}

	return caps, nil
}
