package model

import (
	"time"
)

// Run 一次批量运行的审计记录
type Run struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Kind       string    `json:"kind" gorm:"type:varchar(32);not null;index"`
	Filter     string    `json:"filter" gorm:"type:text"`
	TemplateID string    `json:"template_id" gorm:"type:varchar(255)"`
	DryRun     bool      `json:"dry_run"`
	Status     string    `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	Selected   int       `json:"selected"`
	Succeeded  int       `json:"succeeded"`
	Changed    int       `json:"changed"`
	Failed     int       `json:"failed"`
	Incomplete int       `json:"incomplete"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   int64     `json:"duration"` // 毫秒
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Devices []RunDevice `json:"devices,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName 表名
func (Run) TableName() string {
	return "runs"
}

// RunStatus 运行状态
const (
	RunStatusRunning   = "running"
	RunStatusSuccess   = "success"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunKind 运行类型
const (
	RunKindExec     = "exec"
	RunKindConfig   = "config"
	RunKindApply    = "apply"
	RunKindDescribe = "describe"
	RunKindDNS      = "dns"
	RunKindFacts    = "facts"
	RunKindMLAG     = "mlag"
)

// RunDevice 单台设备的结果摘要；不保存命令输出与配置内容
type RunDevice struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID      string    `json:"run_id" gorm:"type:varchar(64);not null;index;uniqueIndex:uix_run_host"`
	Hostname   string    `json:"hostname" gorm:"type:varchar(255);not null;uniqueIndex:uix_run_host"`
	Platform   string    `json:"platform" gorm:"type:varchar(64)"`
	Status     string    `json:"status" gorm:"type:varchar(16);not null"`
	Subtasks   int       `json:"subtasks"`
	Incomplete bool      `json:"incomplete"`
	ErrorMsg   string    `json:"error_msg" gorm:"type:text"`
	Duration   int64     `json:"duration"` // 毫秒
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (RunDevice) TableName() string {
	return "run_devices"
}
