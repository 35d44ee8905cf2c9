package steps

// DefaultPlan is the fixed step sequence every matrix job executes, in order.
func DefaultPlan() []Step {
	return []Step{
		Checkout{},
		Clean{},
		DiskCheck{},
		DownloadBuild{},
		ProvisionEnv{},
		InstallPackage{},
		DepsCheck{},
		JobID{},
		RunTests{},
		UploadArtifacts{},
		UploadLogs{},
		Teardown{},
	}
}
