package provider

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// Default endpoints of the Sentinel-Asia portal
const (
	SentinelAsiaLoginURL    = "https://sentinel.tksc.jaxa.jp/sentinel2/topControl.jsp"
	SentinelAsiaEORListURL  = "https://sentinel.tksc.jaxa.jp/sentinel2/webresources/emobRequestSelect/viewList?subset_name=Emergency+Observation&submit.countryIdx=&submit.disasterTypeIdx="
	SentinelAsiaEORFilesURL = "https://sentinel.tksc.jaxa.jp/sentinel2/webresources/thumbnailEmob/emergencyViewThumbnail?requestId={EOR_ID}&subsetName=Emergency+Observation&selectDate="
	SentinelAsiaBulletinURL = "https://sentinel.tksc.jaxa.jp/sentinel2/webresources/thumbnailEmob/viewBulletinContent?requestId={EOR_ID}"
	SentinelAsiaDownloadURL = "https://sentinel.tksc.jaxa.jp/sentinel2/webresources/thumbnailEmob/download?dataId="

	// alos2DataType is the type of the files of an EOR that are ALOS2 products
	alos2DataType = "ALOS(Data)"
	// bulletinDateLayout is the layout of the observation date of a bulletin (02/Jan/2006)
	bulletinDateLayout = "02/Jan/2006"
)

// SentinelAsiaEndpoints are the urls of the Sentinel-Asia portal
type SentinelAsiaEndpoints struct {
	EORList  string
	EORFiles string // {EOR_ID} is replaced by the id of the EOR
	Bulletin string // {EOR_ID} is replaced by the id of the EOR
	Download string // prefix of the download link, followed by the data id
}

// DefaultSentinelAsiaEndpoints returns the endpoints of the JAXA Sentinel-Asia portal
func DefaultSentinelAsiaEndpoints() SentinelAsiaEndpoints {
	return SentinelAsiaEndpoints{
		EORList:  SentinelAsiaEORListURL,
		EORFiles: SentinelAsiaEORFilesURL,
		Bulletin: SentinelAsiaBulletinURL,
		Download: SentinelAsiaDownloadURL,
	}
}

// SentinelAsiaLogin is the login of the Sentinel-Asia portal (session identified by the JSESSIONID cookie)
func SentinelAsiaLogin(loginURL string) FormLogin {
	return FormLogin{
		Portal:        "Sentinel-Asia",
		URL:           loginURL,
		UserField:     "userid",
		PasswordField: "passwd",
		Extra:         url.Values{"request": {"login"}, "submit": {"login"}, "loginId": {""}},
		SessionCookie: "JSESSIONID",
		GetFirst:      true,
	}
}

// EOR is an Emergency Observation Request, as listed by the portal
type EOR struct {
	RequestID string `json:"requestId"`
}

// Bulletin describes an EOR
type Bulletin struct {
	RequestID       string `json:"requestId"`
	ObserveDateStr  string `json:"observeDateStr"`
	DisasterTypeStr string `json:"disasterTypeStr"`
	CountryStr      string `json:"countryStr"`
}

// ObserveDate parses the observation date of the bulletin
func (b Bulletin) ObserveDate() (time.Time, error) {
	d, err := time.Parse(bulletinDateLayout, strings.TrimSpace(b.ObserveDateStr))
	if err != nil {
		return time.Time{}, fmt.Errorf("bulletin %s: observation date: %w", b.RequestID, err)
	}
	return d, nil
}

// EORFile is a file of an EOR
type EORFile struct {
	TypeStr string `json:"typeStr"`
	DataID  string `json:"dataId"`
	Title   string `json:"title"`
}

// FileParams describes a downloadable ALOS2 file of an EOR
type FileParams struct {
	DataID      string `json:"data_id" csv:"data_id"`
	DownloadURL string `json:"download_url" csv:"download_url"`
	Filename    string `json:"filename" csv:"filename"`
	Filesize    int64  `json:"filesize" csv:"filesize"`
	EORID       string `json:"eor_id,omitempty" csv:"eor_id"`
	EORDate     string `json:"eor_date,omitempty" csv:"eor_date"`
	EORType     string `json:"eor_type,omitempty" csv:"eor_type"`
	EORCountry  string `json:"eor_country,omitempty" csv:"eor_country"`
	FileTitle   string `json:"filetitle,omitempty" csv:"filetitle"`
}

// Extra returns the metadata of the EOR to be attached to the products
func (fp FileParams) Extra() map[string]string {
	extra := map[string]string{}
	for k, v := range map[string]string{
		common.ExtraEORID:      fp.EORID,
		common.ExtraEORDate:    fp.EORDate,
		common.ExtraEORType:    fp.EORType,
		common.ExtraEORCountry: fp.EORCountry,
		common.ExtraFileTitle:  fp.FileTitle,
	} {
		if v != "" {
			extra[k] = v
		}
	}
	return extra
}

// Archive returns the archive to download
func (fp FileParams) Archive() common.Archive {
	return common.Archive{Name: fp.Filename, URL: fp.DownloadURL, DataID: fp.DataID, Extra: fp.Extra()}
}

// Query of the Sentinel-Asia files. Exactly one of EORID, DataID or Start must be defined.
type Query struct {
	EORID  string
	DataID string
	Start  *time.Time
	End    *time.Time // default: today
}

// SentinelAsiaClient searches and downloads the ALOS2 products of the Sentinel-Asia portal
type SentinelAsiaClient struct {
	Credentials Credentials
	Auth        Authenticator
	Endpoints   SentinelAsiaEndpoints
	Timeout     time.Duration

	session *Session
}

// NewSentinelAsiaClient creates a client of the Sentinel-Asia portal, logging in with the JSESSIONID form
func NewSentinelAsiaClient(creds Credentials) *SentinelAsiaClient {
	return &SentinelAsiaClient{
		Credentials: creds,
		Auth:        SentinelAsiaLogin(SentinelAsiaLoginURL),
		Endpoints:   DefaultSentinelAsiaEndpoints(),
		Timeout:     defaultHTTPTimeout,
	}
}

// Name implements ImageProvider
func (c *SentinelAsiaClient) Name() string {
	return "Sentinel-Asia"
}

// Login opens a new session
func (c *SentinelAsiaClient) Login(ctx context.Context) error {
	s, err := NewSession(c.Timeout)
	if err != nil {
		return fmt.Errorf("SentinelAsiaClient.Login: %w", err)
	}
	if err := c.Auth.Login(ctx, s, c.Credentials); err != nil {
		return fmt.Errorf("SentinelAsiaClient.Login: %w", err)
	}
	c.session = s
	return nil
}

func (c *SentinelAsiaClient) loggedSession(ctx context.Context) (*Session, error) {
	if c.session == nil {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}
	return c.session, nil
}

// EORList returns the list of the EORs
func (c *SentinelAsiaClient) EORList(ctx context.Context) ([]EOR, error) {
	s, err := c.loggedSession(ctx)
	if err != nil {
		return nil, err
	}
	var eors []EOR
	if err := s.GetJSON(ctx, c.Endpoints.EORList, &eors); err != nil {
		return nil, fmt.Errorf("SentinelAsiaClient.EORList: %w", err)
	}
	return eors, nil
}

// Bulletin returns the bulletin of the EOR
func (c *SentinelAsiaClient) Bulletin(ctx context.Context, eorID string) (Bulletin, error) {
	s, err := c.loggedSession(ctx)
	if err != nil {
		return Bulletin{}, err
	}
	var b Bulletin
	if err := s.GetJSON(ctx, c.eorURL(c.Endpoints.Bulletin, eorID), &b); err != nil {
		return Bulletin{}, fmt.Errorf("SentinelAsiaClient.Bulletin: %w", err)
	}
	if b.RequestID == "" {
		b.RequestID = eorID
	}
	return b, nil
}

// EORFiles returns the ALOS2 files of the EOR
func (c *SentinelAsiaClient) EORFiles(ctx context.Context, eorID string) ([]EORFile, error) {
	s, err := c.loggedSession(ctx)
	if err != nil {
		return nil, err
	}
	var files []EORFile
	if err := s.GetJSON(ctx, c.eorURL(c.Endpoints.EORFiles, eorID), &files); err != nil {
		return nil, fmt.Errorf("SentinelAsiaClient.EORFiles: %w", err)
	}
	var alos2 []EORFile
	for _, f := range files {
		if strings.Contains(f.TypeStr, alos2DataType) {
			alos2 = append(alos2, f)
		}
	}
	return alos2, nil
}

func (c *SentinelAsiaClient) eorURL(pattern, eorID string) string {
	return common.FormatBrackets(pattern, map[string]string{"EOR_ID": url.QueryEscape(eorID)})
}

// DownloadURL returns the download link of the data
func (c *SentinelAsiaClient) DownloadURL(dataID string) string {
	return c.Endpoints.Download + url.QueryEscape(dataID)
}

// FileParams probes the download link of the data to get its filename and size
func (c *SentinelAsiaClient) FileParams(ctx context.Context, dataID string) (FileParams, error) {
	s, err := c.loggedSession(ctx)
	if err != nil {
		return FileParams{}, err
	}
	link := c.DownloadURL(dataID)
	info, err := s.Head(ctx, link)
	if err != nil {
		return FileParams{}, fmt.Errorf("SentinelAsiaClient.FileParams[%s]: %w", dataID, err)
	}
	return FileParams{DataID: dataID, DownloadURL: link, Filename: info.Filename, Filesize: info.Size}, nil
}

// eorFileParams returns the file params of all the ALOS2 files of the EOR, with the metadata of its bulletin
func (c *SentinelAsiaClient) eorFileParams(ctx context.Context, b Bulletin) ([]FileParams, error) {
	date, err := b.ObserveDate()
	if err != nil {
		return nil, service.MakeFatal(err)
	}
	files, err := c.EORFiles(ctx, b.RequestID)
	if err != nil {
		return nil, err
	}
	var params []FileParams
	for _, f := range files {
		fp, err := c.FileParams(ctx, f.DataID)
		if err != nil {
			return nil, err
		}
		fp.EORID = b.RequestID
		fp.EORDate = date.Format("20060102")
		fp.EORType = b.DisasterTypeStr
		fp.EORCountry = b.CountryStr
		fp.FileTitle = f.Title
		params = append(params, fp)
	}
	log.Logger(ctx).Sugar().Debugf("EOR %s: %d ALOS2 files", b.RequestID, len(params))
	return params, nil
}

// Search returns the ALOS2 files matching the query:
// all the files of an EOR, a single file from its data id, or the files of all the EORs observed in [start, end]
func (c *SentinelAsiaClient) Search(ctx context.Context, q Query) ([]FileParams, error) {
	switch {
	case q.EORID != "" && q.DataID != "":
		return nil, service.MakeFatal(fmt.Errorf("SentinelAsiaClient.Search: eor id and data id are mutually exclusive"))

	case q.EORID != "":
		b, err := c.Bulletin(ctx, q.EORID)
		if err != nil {
			return nil, err
		}
		return c.eorFileParams(ctx, b)

	case q.DataID != "":
		fp, err := c.FileParams(ctx, q.DataID)
		if err != nil {
			return nil, err
		}
		return []FileParams{fp}, nil

	case q.Start != nil:
		end := time.Now().UTC()
		if q.End != nil {
			end = *q.End
		}
		start, end := day(*q.Start), day(end)
		eors, err := c.EORList(ctx)
		if err != nil {
			return nil, err
		}
		var params []FileParams
		for _, eor := range eors {
			b, err := c.Bulletin(ctx, eor.RequestID)
			if err != nil {
				return nil, err
			}
			date, err := b.ObserveDate()
			if err != nil {
				log.Logger(ctx).Sugar().Warnf("skipping EOR %s: %v", eor.RequestID, err)
				continue
			}
			if date.Before(start) || date.After(end) {
				continue
			}
			fps, err := c.eorFileParams(ctx, b)
			if err != nil {
				return nil, err
			}
			params = append(params, fps...)
		}
		return params, nil
	}
	return nil, service.MakeFatal(fmt.Errorf("SentinelAsiaClient.Search: one of eor id, data id or start date is required"))
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Download implements ImageProvider
func (c *SentinelAsiaClient) Download(ctx context.Context, archive common.Archive, localDir string) (string, error) {
	dataID := archive.DataID
	if dataID == "" && archive.URL != "" {
		if i := strings.LastIndex(archive.URL, "="); i >= 0 {
			dataID = archive.URL[i+1:]
		}
	}
	if dataID == "" {
		return "", service.MakeFatal(fmt.Errorf("SentinelAsiaClient.Download: missing data id"))
	}
	fp, err := c.FileParams(ctx, dataID)
	if err != nil {
		return "", fmt.Errorf("SentinelAsiaClient.Download: %w", err)
	}
	if fp.Filename == "" {
		fp.Filename = archive.Name
	}
	localFile := filepath.Join(localDir, fp.Filename)
	log.Logger(ctx).Sugar().Infof("downloading %s to %s (%s)", dataID, localFile, fmtBytes(fp.Filesize))
	if err := c.session.Download(ctx, fp.DownloadURL, localFile, "Sentinel-Asia "+dataID); err != nil {
		return "", fmt.Errorf("SentinelAsiaClient.Download: %w", err)
	}
	if err := checkSize(localFile, fp.Filesize); err != nil {
		return "", fmt.Errorf("SentinelAsiaClient.Download: %w", err)
	}
	return localFile, nil
}
