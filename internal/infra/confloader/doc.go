// Package confloader loads layered configuration with koanf and watches
// configuration files with fsnotify.
//
// Priority (highest to lowest):
//
//  1. Environment variables (UACORE_ prefix, "__" separates sections)
//  2. The YAML configuration file
//  3. Defaults supplied through LoadMap
package confloader
