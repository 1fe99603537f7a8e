package config

// Application constants
const (
	// Application Info
	AppName    = "adminexport"
	AppVersion = "1.0.0"

	// Admin console endpoints
	DefaultLoginURL = "https://silkroad21.co.kr/pzadm/Login.asp"
	DefaultListURL  = "https://silkroad21.co.kr/Admin/Acting/Acting_S.asp?gMnu1=101&gMnu2=10101"

	// File permissions
	DirPerm  = 0755
	FilePerm = 0644

	// Filename used when a captured response names no file
	DefaultCaptureName = "download"
)
