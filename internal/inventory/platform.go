package inventory

import "strings"

// PlatformTable 平台名到设备类别的映射
type PlatformTable map[string]Class

// DefaultPlatforms 内置平台表
func DefaultPlatforms() PlatformTable {
	return PlatformTable{
		"ios":            ClassConfigCLI,
		"eos":            ClassConfigAPI,
		"junos":          ClassConfigAPI,
		"fortinet":       ClassExecCLI,
		"cloudgenix_ion": ClassExecCLI,
		"cisco_wlc":      ClassController,
	}
}

// PlatformsFromConfig 在内置表基础上叠加配置中的 platform -> class 映射
func PlatformsFromConfig(overrides map[string]string) (PlatformTable, error) {
	table := DefaultPlatforms()
	for name, className := range overrides {
		c, err := ParseClass(className)
		if err != nil {
			return nil, err
		}
		table[strings.ToLower(strings.TrimSpace(name))] = c
	}
	return table, nil
}

// Lookup 查询平台类别
func (t PlatformTable) Lookup(platform string) (Class, bool) {
	c, ok := t[strings.ToLower(strings.TrimSpace(platform))]
	return c, ok
}
