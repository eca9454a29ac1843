package common

// Job parameters sent to the downstream job orchestrator
const (
	ParamDownloadURL  = "download_url"
	ParamOrderID      = "order_id"
	ParamEORID        = "eor_id"
	ParamDataID       = "data_id"
	ParamPathNumber   = "path_number"
	ParamDirectory    = "directory"
	ParamDate         = "date"
	ParamFiles        = "files"
	ParamStartTime    = "start_time"
	ParamEndTime      = "end_time"
	ParamDatasetName  = "dataset_name"
	ParamProductLevel = "product_level"
)

// Extra metadata fields attached to an archive downloaded from Sentinel-Asia
const (
	ExtraEORID      = "eor_id"
	ExtraEORDate    = "eor_date"
	ExtraEORType    = "eor_type"
	ExtraEORCountry = "eor_country"
	ExtraFileTitle  = "filetitle"
)
