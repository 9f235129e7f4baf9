package urls

// External URLs used in terminal output and troubleshooting hints.

// FCCReportBase is the human-readable FCC filing report page.
// Append an FCC ID to get a device's filing, e.g. Q95ER19.
const FCCReportBase = "https://fcc.report/FCC-ID/"

// FCCAPIBase is the fcc.report JSON API endpoint for filings by FCC ID.
const FCCAPIBase = "https://fcc.report/api/v1/fcc-id/"

// MitmproxyDownload is where to get mitmproxy/mitmdump when it is not
// installed.
const MitmproxyDownload = "https://mitmproxy.org/"

// MitmproxyCerts documents installing the mitmproxy CA certificate so
// intercepted updaters trust the proxy.
const MitmproxyCerts = "https://docs.mitmproxy.org/stable/concepts-certificates/"

// WineDownload is the Wine project download page for running Windows
// updaters on Linux and macOS.
const WineDownload = "https://www.winehq.org/"

// VirtualBoxDownload is the VirtualBox download page, needed for the
// USB-passthrough runner.
const VirtualBoxDownload = "https://www.virtualbox.org/"

// USBGadgetDocs is the kernel documentation for configfs-based USB
// gadget composition.
const USBGadgetDocs = "https://docs.kernel.org/usb/gadget_configfs.html"
